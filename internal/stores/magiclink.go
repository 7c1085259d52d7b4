package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	magicLinkRecordVersionV1 = 1

	linkFlagDisabled = 1 << 0
)

var (
	ErrLinkNotFound         = errors.New("magic link record not found")
	ErrLinkUsed             = errors.New("magic link record used")
	ErrLinkExpired          = errors.New("magic link record expired")
	ErrLinkIPMismatch       = errors.New("magic link record ip mismatch")
	ErrLinkBrowserMismatch  = errors.New("magic link record browser mismatch")
	ErrLinkRedisUnavailable = errors.New("magic link redis unavailable")
)

type MagicLinkRecord struct {
	LinkID      string
	Principal   string
	RedirectURL string
	CookieValue string
	IPAddress   string
	ExpiresAt   int64
	CreatedAt   int64
	TimesUsed   uint16
	Disabled    bool
}

// ConsumeCheck carries the presentation context evaluated inside the
// Consume transaction.
type ConsumeCheck struct {
	PresentedIP        string
	CookieValue        string
	RequireSameIP      bool
	RequireSameBrowser bool
	TokenUses          int
	Now                time.Time
}

type MagicLinkStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewMagicLinkStore(redisClient redis.UniversalClient, prefix string) *MagicLinkStore {
	if prefix == "" {
		prefix = "ml"
	}
	return &MagicLinkStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *MagicLinkStore) key(tenantID, tokenKey string) string {
	return s.prefix + ":" + normalizeTenantID(tenantID) + ":" + tokenKey
}

// indexKey is the set of token keys with a live (non-disabled) record for a
// principal. It backs the one-active-link-per-principal policy.
func (s *MagicLinkStore) indexKey(tenantID, principal string) string {
	return s.prefix + "u:" + normalizeTenantID(tenantID) + ":" + principal
}

func (s *MagicLinkStore) Save(
	ctx context.Context,
	tenantID, tokenKey string,
	record *MagicLinkRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeMagicLinkRecord(record)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(tenantID, tokenKey), encoded, ttl)
	pipe.SAdd(ctx, s.indexKey(tenantID, record.Principal), tokenKey)
	pipe.Expire(ctx, s.indexKey(tenantID, record.Principal), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	return nil
}

func (s *MagicLinkStore) Get(ctx context.Context, tenantID, tokenKey string) (*MagicLinkRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID, tokenKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	return decodeMagicLinkRecord(data)
}

// Consume evaluates one presentation of a link and charges its use counter.
// The checks run in a fixed order (disabled, expiry, IP, browser, uses); the
// first failure disables the record before the sentinel is returned, and the
// attempt is charged to TimesUsed whatever the outcome. The whole
// read-check-write runs inside a WATCH transaction so concurrent
// presentations of the same token serialize.
func (s *MagicLinkStore) Consume(
	ctx context.Context,
	tenantID, tokenKey string,
	check ConsumeCheck,
) (*MagicLinkRecord, error) {
	const maxRetries = 4
	key := s.key(tenantID, tokenKey)

	if check.Now.IsZero() {
		check.Now = time.Now()
	}

	for i := 0; i < maxRetries; i++ {
		var matched *MagicLinkRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeMagicLinkRecord(data)
			if err != nil {
				return err
			}

			prevUses := record.TimesUsed
			record.TimesUsed++

			persist := func(outcome error) error {
				updated, err := encodeMagicLinkRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, redis.KeepTTL)
					if record.Disabled {
						pipe.SRem(ctx, s.indexKey(tenantID, record.Principal), tokenKey)
					}
					return nil
				})
				if err != nil {
					return err
				}
				return outcome
			}

			if record.Disabled {
				return persist(ErrLinkUsed)
			}
			if check.Now.Unix() > record.ExpiresAt {
				record.Disabled = true
				return persist(ErrLinkExpired)
			}
			if check.RequireSameIP && record.IPAddress != "" && record.IPAddress != check.PresentedIP {
				record.Disabled = true
				return persist(ErrLinkIPMismatch)
			}
			if check.RequireSameBrowser &&
				subtle.ConstantTimeCompare([]byte(record.CookieValue), []byte(check.CookieValue)) != 1 {
				record.Disabled = true
				return persist(ErrLinkBrowserMismatch)
			}
			if int(prevUses) >= check.TokenUses {
				record.Disabled = true
				return persist(ErrLinkUsed)
			}

			if int(record.TimesUsed) >= check.TokenUses {
				record.Disabled = true
			}

			if err := persist(nil); err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrLinkNotFound
			case errors.Is(err, ErrLinkUsed),
				errors.Is(err, ErrLinkExpired),
				errors.Is(err, ErrLinkIPMismatch),
				errors.Is(err, ErrLinkBrowserMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrLinkNotFound
}

// Disable flips a record to disabled without charging a use. It is
// idempotent; disabling an already-disabled record is a no-op success.
func (s *MagicLinkStore) Disable(ctx context.Context, tenantID, tokenKey string) error {
	const maxRetries = 4
	key := s.key(tenantID, tokenKey)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeMagicLinkRecord(data)
			if err != nil {
				return err
			}
			if record.Disabled {
				return nil
			}

			record.Disabled = true
			updated, err := encodeMagicLinkRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				pipe.SRem(ctx, s.indexKey(tenantID, record.Principal), tokenKey)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrLinkNotFound
			}
			return fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
		}

		return nil
	}

	return fmt.Errorf("%w: disable contention", ErrLinkRedisUnavailable)
}

// DisableAllForPrincipal disables every live record indexed for the
// principal and reports how many records actually transitioned. Used when a
// new link supersedes its predecessors.
func (s *MagicLinkStore) DisableAllForPrincipal(ctx context.Context, tenantID, principal string) (int, error) {
	indexKey := s.indexKey(tenantID, principal)

	members, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLinkRedisUnavailable, err)
	}

	disabled := 0
	for _, tokenKey := range members {
		err := s.Disable(ctx, tenantID, tokenKey)
		if err != nil {
			if errors.Is(err, ErrLinkNotFound) {
				// index member outlived its record; drop it
				_ = s.redis.SRem(ctx, indexKey, tokenKey).Err()
				continue
			}
			return disabled, err
		}
		disabled++
	}

	return disabled, nil
}

func encodeMagicLinkRecord(record *MagicLinkRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(magicLinkRecordVersionV1)

	var flags byte
	if record.Disabled {
		flags |= linkFlagDisabled
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.TimesUsed); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.LinkID,
		record.Principal,
		record.RedirectURL,
		record.CookieValue,
		record.IPAddress,
	} {
		if len(field) > 65535 {
			return nil, errors.New("magic link record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeMagicLinkRecord(data []byte) (*MagicLinkRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != magicLinkRecordVersionV1 {
		return nil, errors.New("invalid magic link record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &MagicLinkRecord{
		Disabled: flags&linkFlagDisabled != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.TimesUsed); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{
		&record.LinkID,
		&record.Principal,
		&record.RedirectURL,
		&record.CookieValue,
		&record.IPAddress,
	} {
		var fieldLen uint16
		if err := binary.Read(reader, binary.BigEndian, &fieldLen); err != nil {
			return nil, err
		}
		raw := make([]byte, fieldLen)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	return record, nil
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
