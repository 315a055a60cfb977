// Package all registers every transport binding.
package all

import (
	// transport bindings
	_ "github.com/robotalks/rdd.go/pkg/sim"
	_ "github.com/robotalks/rdd.go/pkg/transport/mqtt"
	_ "github.com/robotalks/rdd.go/pkg/transport/serial"
	_ "github.com/robotalks/rdd.go/pkg/transport/stream"
	_ "github.com/robotalks/rdd.go/pkg/transport/websocket"
)
