// Package discovery finds MQTT brokers on the local network via mDNS.
//
// Brokers advertising the standard "_mqtt._tcp" service (Mosquitto and
// friends) are browsed over zeroconf. Discovery is optional: it only runs
// when the bridge configuration enables it and omits a broker URL.
package discovery
