package version

import "fmt"

// Overridden at build time via -ldflags "-X rirstats/internal/app/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("rirstats %s (built %s)", i.BuildVersion, i.BuiltAt)
}

// UserAgent is sent with every registry request.
func UserAgent() string {
	return "rirstats/" + buildVersion
}
