// Package config resolves configuration overrides from the environment.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvOverrides returns the values of keys that are set in the environment.
// A key such as "gateway.stripe.secret_key" is read from PREFIX_GATEWAY_STRIPE_SECRET_KEY.
func EnvOverrides(prefix string, keys ...string) map[string]string {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	overrides := make(map[string]string)
	for _, key := range keys {
		if v.IsSet(key) {
			overrides[key] = v.GetString(key)
		}
	}
	return overrides
}
