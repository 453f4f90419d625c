// Package khacks is a joint control and walking client for the Z-Bot
// humanoid.
//
// It maps logical joints to actuator ids, serializes every call to the
// actuator service through one guarded link, and runs a fixed-rate walk
// loop that feeds IMU and joint readings to an external policy service
// and commands the joints with its output.
//
// # Installation
//
//	go install github.com/willothy/khacks-0.3/cmd/zbot@latest
//
// # Usage
//
// First, run setup to find the servo bus and IMU and calibrate the joints:
//
//	zbot setup
//
// Then move a joint, play a canned move or walk:
//
//	zbot move right_shoulder pitch 70
//	zbot play dab
//	zbot walk --vx 0.3
//
// Or serve the admin API:
//
//	zbot serve --listen :3000
//
// # Packages
//
//   - cmd/zbot: CLI with setup, info, move, play, walk and serve commands
//   - pkg/robot: joint registry, actuator link and robot controller
//   - pkg/kos: actuator and IMU service contract, simulator
//   - pkg/kos/stsbus: actuator service on a Feetech STS bus
//   - pkg/kos/serialimu: IMU service on a serial line
//   - pkg/policy: inference service client
//   - pkg/walk: walk loop and runner
//   - pkg/moves: canned joint sequences
//   - pkg/server: admin HTTP API
//   - pkg/config: configuration file
package khacks
