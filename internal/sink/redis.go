package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rirstats/internal/domain"
)

const (
	redisSnapshotKeyPrefix = "rirstats:allocations:"
	redisUpdatesChannel    = "rirstats:allocations:updates"
	redisOpTimeout         = 30 * time.Second
)

type snapshotRecord struct {
	Registry      string `json:"registry"`
	CountryCode   string `json:"country_code"`
	AddressFamily string `json:"address_family"`
	RangeStart    string `json:"range_start"`
	BlockSize     uint32 `json:"block_size"`
	Date          string `json:"date"`
	Status        string `json:"status"`
}

type snapshotPayload struct {
	Source    string           `json:"source"`
	URL       string           `json:"url"`
	FetchedAt string           `json:"fetched_at"`
	Records   []snapshotRecord `json:"records"`
}

type updateNotice struct {
	Source    string `json:"source"`
	Records   int    `json:"records"`
	FetchedAt string `json:"fetched_at"`
}

// Redis stores the latest batch of each source as a JSON snapshot and
// announces it on a pub/sub channel.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func SnapshotKey(source string) string {
	return redisSnapshotKeyPrefix + source
}

func (r *Redis) Emit(ctx context.Context, batch domain.AllocationBatch) error {
	if r.client == nil {
		return fmt.Errorf("redis sink: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	snapshot, notice, err := encodeBatch(batch)
	if err != nil {
		return fmt.Errorf("redis sink: encode %s: %w", batch.Source, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Set(opCtx, SnapshotKey(batch.Source), snapshot, 0).Err(); err != nil {
		return fmt.Errorf("redis sink: store %s: %w", batch.Source, err)
	}
	if err := r.client.Publish(opCtx, redisUpdatesChannel, notice).Err(); err != nil {
		return fmt.Errorf("redis sink: publish %s: %w", batch.Source, err)
	}
	return nil
}

func encodeBatch(batch domain.AllocationBatch) ([]byte, []byte, error) {
	fetchedAt := batch.FetchedAt.UTC().Format(time.RFC3339)

	records := make([]snapshotRecord, 0, len(batch.Records))
	for _, rec := range batch.Records {
		records = append(records, snapshotRecord{
			Registry:      rec.Registry,
			CountryCode:   rec.CountryCode,
			AddressFamily: rec.AddressFamily,
			RangeStart:    rec.RangeStart,
			BlockSize:     rec.BlockSize,
			Date:          rec.Date,
			Status:        rec.Status,
		})
	}

	snapshot, err := json.Marshal(snapshotPayload{
		Source:    batch.Source,
		URL:       batch.URL,
		FetchedAt: fetchedAt,
		Records:   records,
	})
	if err != nil {
		return nil, nil, err
	}

	notice, err := json.Marshal(updateNotice{
		Source:    batch.Source,
		Records:   len(records),
		FetchedAt: fetchedAt,
	})
	if err != nil {
		return nil, nil, err
	}

	return snapshot, notice, nil
}
