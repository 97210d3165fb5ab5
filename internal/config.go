package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	BufferSize           int `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,required=true"`
	NumberOfWorkers      int `env:"NUMBER_OF_WORKERS,required=true"`
	MaxSessionsPerUser   int `env:"MAX_SESSIONS_PER_USER,required=true"`

	DispatchTimeout   time.Duration `env:"DISPATCH_TIMEOUT,required=true"`
	AckTimeout        time.Duration `env:"ACK_TIMEOUT,required=true"`
	MatchWindow       time.Duration `env:"MATCH_WINDOW,required=true"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	TokenSecret    string `env:"TOKEN_SECRET,required=true"`

	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	PreviewLength    int    `env:"PREVIEW_LENGTH,default=80"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=4096"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
