package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

//Load reads a .env file into the process environment if one exists
func Load(log zerolog.Logger, filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		log.Info().Msg("no .env file found, assuming environment variables are set directly")
	}
}

//GetOrDefault returns the trimmed value of key, or def if it is unset or empty
func GetOrDefault(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func GetBool(key string, def bool) bool {
	value, err := strconv.ParseBool(GetOrDefault(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return value
}

func GetDuration(key string, def time.Duration) time.Duration {
	value, err := time.ParseDuration(GetOrDefault(key, def.String()))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
