// Package mqtt connects the engine to wearable devices over an MQTT broker.
// Panic payloads published by wearables raise alerts, and recording
// commands are published to the devices of a subject.
package mqtt
