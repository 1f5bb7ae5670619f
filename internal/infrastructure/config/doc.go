// Package config loads the Gray Logic Notify configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// GRAYLOGIC_<SECTION>_<KEY> environment variables (for example
// GRAYLOGIC_API_PORT or GRAYLOGIC_DELIVERY_MODE). Validate runs last and
// reports every problem in a single error.
//
// Secrets such as the MQTT password, the InfluxDB token and the
// management key belong in the environment rather than the file. The token
// signing secret is not configured at all: it is generated on first use and
// kept in the keyed store.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
