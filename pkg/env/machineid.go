package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// ClientID derives a stable identity of this host for MQTT.
func ClientID() string {
	id, err := machineid.ProtectedID("rdd")
	if err != nil {
		host, _ := os.Hostname()
		return "rdd-" + host
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return "rdd-" + id
}
