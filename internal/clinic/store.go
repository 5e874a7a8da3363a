package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"
)

var digitsPattern = regexp.MustCompile(`\d+`)

// NumberKey reduces a phone number to its digits for index lookups.
func NumberKey(number string) string {
	return strings.Join(digitsPattern.FindAllString(number, -1), "")
}

// Store provides persistence for clinic configurations.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new clinic config store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

func (s *Store) numberKey(number string) string {
	return fmt.Sprintf("clinic:number:%s", NumberKey(number))
}

// Get retrieves clinic config, returning default if not found.
func (s *Store) Get(ctx context.Context, clinicID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultConfig(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = clinicID
	}
	return &cfg, nil
}

// Set saves clinic config and indexes its phone numbers.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(cfg.ID), data, 0)
	for _, number := range cfg.Numbers {
		if NumberKey(number) == "" {
			continue
		}
		pipe.Set(ctx, s.numberKey(number), cfg.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}
	return nil
}

// ResolveClinicID maps an inbound (called) number to a clinic id.
func (s *Store) ResolveClinicID(ctx context.Context, number string) (string, error) {
	if NumberKey(number) == "" {
		return "", ErrClinicNotFound
	}
	id, err := s.redis.Get(ctx, s.numberKey(number)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrClinicNotFound
	}
	if err != nil {
		return "", fmt.Errorf("clinic: resolve number: %w", err)
	}
	return id, nil
}

// StaticResolver maps numbers to clinics from configuration.
type StaticResolver struct {
	numbers map[string]string
}

// NewStaticResolver builds a resolver from a number→clinic map.
func NewStaticResolver(mapping map[string]string) *StaticResolver {
	numbers := make(map[string]string, len(mapping))
	for number, clinicID := range mapping {
		if key := NumberKey(number); key != "" && clinicID != "" {
			numbers[key] = clinicID
		}
	}
	return &StaticResolver{numbers: numbers}
}

// ParseStaticResolver decodes a JSON object of number→clinic id.
func ParseStaticResolver(raw string) (*StaticResolver, error) {
	mapping := map[string]string{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return nil, fmt.Errorf("clinic: parse number map: %w", err)
		}
	}
	return NewStaticResolver(mapping), nil
}

// ResolveClinicID implements the resolver contract.
func (r *StaticResolver) ResolveClinicID(_ context.Context, number string) (string, error) {
	if id, ok := r.numbers[NumberKey(number)]; ok {
		return id, nil
	}
	return "", ErrClinicNotFound
}

// Resolver maps an inbound number to a clinic.
type Resolver interface {
	ResolveClinicID(ctx context.Context, number string) (string, error)
}

// ChainResolver tries resolvers in order and returns the first hit.
type ChainResolver []Resolver

// ResolveClinicID implements Resolver.
func (c ChainResolver) ResolveClinicID(ctx context.Context, number string) (string, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		id, err := r.ResolveClinicID(ctx, number)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrClinicNotFound) {
			return "", err
		}
	}
	return "", ErrClinicNotFound
}
