// Package influxdb records counter history in InfluxDB v2.
//
// Writes go through the non-blocking batched write API of
// influxdb-client-go; asynchronous write errors are logged. CounterRecorder
// plugs the client into a device as an observer, producing one
// device_counter point per committed mutation:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	dev.AddObserver(influxdb.NewCounterRecorder(client, dev.ID()))
package influxdb
