package util

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// LoadEnv reads .env.<env> and then .env from the working directory into the
// process environment. Variables already present in the environment win.
func LoadEnv(env string) error {
	var loaded int
	for _, name := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(name)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for _, key := range v.AllKeys() {
			upper := strings.ToUpper(key)
			if _, exists := os.LookupEnv(upper); exists {
				continue
			}
			if err := os.Setenv(upper, v.GetString(key)); err != nil {
				return err
			}
		}
		loaded++
	}
	if loaded == 0 {
		return errors.New("no .env file found")
	}
	return nil
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvOr returns def when the variable is unset or blank.
func GetEnvOr(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetDurationEnv accepts Go duration strings ("90s", "5m").
func GetDurationEnv(key string, def time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetListEnv splits a comma separated variable, dropping blank items.
func GetListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(GetEnv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetMapEnv parses "k1=v1,k2=v2". Items without "=" are ignored.
func GetMapEnv(key string) map[string]string {
	out := make(map[string]string)
	for _, item := range GetListEnv(key) {
		k, v, ok := strings.Cut(item, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
