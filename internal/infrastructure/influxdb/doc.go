// Package influxdb records device state history as time series in
// InfluxDB v2.
//
// Every applied snapshot becomes one point in the device_state
// measurement, tagged with device_id and carrying the four flags as
// boolean fields. The point time is the snapshot's lastUpdated.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	manager.Observe("influxdb", client.WriteStateSnapshot)
//
// Writes go through the library's batched non-blocking API, sized by
// batch_size and flush_interval.
package influxdb
