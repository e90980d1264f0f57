// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
)

type Config struct {
	ListenAddress   string `env:"LISTEN_ADDRESS"   envDefault:":8080"          envDocs:"address the websocket endpoint listens on"`
	MetricsAddress  string `env:"METRICS_ADDRESS"  envDefault:":8081"          envDocs:"address the prometheus endpoint listens on"`
	ZipkinEndpoint  string `env:"ZIPKIN_ENDPOINT"  envDefault:""               envDocs:"zipkin collector url (empty disables trace export)"`
	LogLevel        string `env:"LOG_LEVEL"        envDefault:"info"           envDocs:"logrus level"`
	RedisAddress    string `env:"REDIS_ADDRESS"    envDefault:"localhost:6379" envDocs:"redis address of the rating document store"`
	RedisPassword   string `env:"REDIS_PASSWORD"   envDefault:""               envDocs:"redis password"`
	RedisDB         int    `env:"REDIS_DB"         envDefault:"0"              envDocs:"redis database index"`
	ArchivePath     string `env:"ARCHIVE_PATH"     envDefault:"games.db"       envDocs:"sqlite file holding finished games"`
	ProtocolVersion string `env:"PROTOCOL_VERSION" envDefault:"1"              envDocs:"client protocol version, part of the segment key"`

	TicksPerSecond   int `env:"TICKS_PER_SECOND"   envDefault:"60"    envDocs:"logical ticks per second"`
	TicksPerTurn     int `env:"TICKS_PER_TURN"     envDefault:"2"     envDocs:"ticks advanced on every scheduler wake-up"`
	IdleTicks        int `env:"IDLE_TICKS"         envDefault:"600"   envDocs:"ticks without input after which a game stops advancing"`
	JoinPeriodTicks  int `env:"JOIN_PERIOD_TICKS"  envDefault:"180"   envDocs:"ticks a game stays joinable after the first spell is cast"`
	MaxHistoryLength int `env:"MAX_HISTORY_LENGTH" envDefault:"18000" envDocs:"tick packets kept per game, exceeding it closes joining"`

	MaxPlayers         int     `env:"MAX_PLAYERS"          envDefault:"8"   envDocs:"players per game before a split is attempted"`
	HardMaxPlayers     int     `env:"HARD_MAX_PLAYERS"     envDefault:"12"  envDocs:"players per game when no split is possible"`
	MinPlayers         int     `env:"MIN_PLAYERS"          envDefault:"2"   envDocs:"games are filled with bots up to this number on request"`
	AllowBots          bool    `env:"ALLOW_BOTS"           envDefault:"true"  envDocs:"whether bots may fill or replace players"`
	AllowBotTeams      bool    `env:"ALLOW_BOT_TEAMS"      envDefault:"false" envDocs:"whether team candidates may include bots"`
	MinPartitionSize   int     `env:"MIN_PARTITION_SIZE"   envDefault:"2"   envDocs:"smallest fork a split may produce"`
	SplitNeighborhood  int     `env:"SPLIT_NEIGHBORHOOD"   envDefault:"2"   envDocs:"split indices tried on each side of the seed"`
	MaxSplitCandidates int     `env:"MAX_SPLIT_CANDIDATES" envDefault:"5"   envDocs:"maximum split candidates evaluated"`
	RatingPower        float64 `env:"RATING_POWER"         envDefault:"4"   envDocs:"exponent applied to candidate win probability"`
	OddPenalty         float64 `env:"ODD_PENALTY"          envDefault:"0.5" envDocs:"weight factor per odd-sized partition"`

	AcoR                   float64 `env:"ACO_R"                    envDefault:"400"  envDocs:"logistic scale of the rating curve"`
	AcoK                   float64 `env:"ACO_K"                    envDefault:"32"   envDocs:"rating learning rate"`
	AcoPower               float64 `env:"ACO_POWER"                envDefault:"1"    envDocs:"damping exponent of the learning rate"`
	AcoConfidence          float64 `env:"ACO_CONFIDENCE"           envDefault:"100"  envDocs:"games after which the empirical curve dominates"`
	MaxLearningRate        float64 `env:"MAX_LEARNING_RATE"        envDefault:"1.5"  envDocs:"cap of summed duel multipliers per player"`
	UnrankedMirrorFraction float64 `env:"UNRANKED_MIRROR_FRACTION" envDefault:"0.5"  envDocs:"fraction of ranked delta mirrored to unranked"`
	UnrankedFloorGap       float64 `env:"UNRANKED_FLOOR_GAP"       envDefault:"200"  envDocs:"unranked rating never drops below ranked minus this gap"`
	InitialRating          float64 `env:"INITIAL_RATING"           envDefault:"1500" envDocs:"rating of a user without a record"`
	StatsWindow            int     `env:"STATS_WINDOW"             envDefault:"20"   envDocs:"games averaged by the per-game stat means"`
	DecayAfterDays         int     `env:"DECAY_AFTER_DAYS"         envDefault:"14"   envDocs:"age after which rating gains are clawed back"`
	DecayFraction          float64 `env:"DECAY_FRACTION"           envDefault:"0.5"  envDocs:"fraction of an old gain that is clawed back"`
	MaxTxRetries           int     `env:"MAX_TX_RETRIES"           envDefault:"10"   envDocs:"retries of a conflicting store transaction"`

	WinRateBucketSize       float64 `env:"WIN_RATE_BUCKET_SIZE"       envDefault:"50"   envDocs:"rating difference covered by one win-rate bucket"`
	WinRateRecomputeSeconds int     `env:"WIN_RATE_RECOMPUTE_SECONDS" envDefault:"3600" envDocs:"period of the win-rate distribution rebuild"`
}

var (
	ErrInvalidTickRate   = errors.New("ticks per second and ticks per turn must be positive")
	ErrInvalidMaxPlayers = errors.New("hard max players must be between max players and twice max players minus one")
	ErrInvalidPartition  = errors.New("min partition size must be at least 1 and at most half of max players")
)

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied, mostly used by tests.
func Default() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg)
	return cfg
}

func (c *Config) Validate() error {
	if c.TicksPerSecond <= 0 || c.TicksPerTurn <= 0 {
		return ErrInvalidTickRate
	}
	// a 2-way split has to be able to absorb an over-full game plus one joiner
	if c.HardMaxPlayers < c.MaxPlayers || c.HardMaxPlayers > 2*c.MaxPlayers-1 {
		return ErrInvalidMaxPlayers
	}
	if c.MinPartitionSize < 1 || c.MinPartitionSize*2 > c.MaxPlayers {
		return ErrInvalidPartition
	}
	return nil
}

// TurnPeriod is the wall-clock time between two scheduler wake-ups.
func (c *Config) TurnPeriod() time.Duration {
	return time.Duration(c.TicksPerTurn) * time.Second / time.Duration(c.TicksPerSecond)
}

// GameConfig builds the per-game matchmaking configuration.
func (c *Config) GameConfig(category string, ranked bool) models.GameConfig {
	return models.GameConfig{
		Category:          category,
		Ranked:            ranked,
		MaxPlayers:        c.MaxPlayers,
		HardMaxPlayers:    c.HardMaxPlayers,
		MinPlayers:        c.MinPlayers,
		AllowBots:         c.AllowBots,
		AllowBotTeams:     c.AllowBotTeams,
		JoinPeriodTicks:   int64(c.JoinPeriodTicks),
		IdleTicks:         int64(c.IdleTicks),
		MaxHistoryLength:  c.MaxHistoryLength,
		MinPartitionSize:  c.MinPartitionSize,
		SplitNeighborhood: c.SplitNeighborhood,
		MaxCandidates:     c.MaxSplitCandidates,
		RatingPower:       c.RatingPower,
		OddPenalty:        c.OddPenalty,
	}
}
