// Package bridge composes the state coalescer and the MQTT gateway into the
// accessory-facing bridge API.
//
// Local writes go through SetState, which coalesces rapid successive
// mutations into one published snapshot and resolves every caller with the
// publish outcome. Remote messages flow from the gateway straight to the
// host reconciliation hook; they never pass through the coalescer.
package bridge
