// Package infra holds the adapters behind the domain interfaces: the
// SQLCipher store and its key providers, NATS and WebSocket transports,
// sysfs LEDs, logind-backed wake locks, frame capture, process lookup and
// the systemd unit manager.
package infra
