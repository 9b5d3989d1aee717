// Package influxdb records gateway history in InfluxDB v2.
//
// Two measurements are written:
//   - gateway_status: one point per status transition (tags gateway_id,
//     gateway, network; fields status, message, up)
//   - raw_messages: inbound payloads, when archiving is enabled
//
// Writes go through the non-blocking WriteAPI and never stall a gateway
// supervisor. Failures surface through SetOnError.
package influxdb
