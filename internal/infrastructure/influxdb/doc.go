// Package influxdb mirrors stored door events into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every record the
// gateway inserts for the first time is written as a point:
//
//	door_access,door_id=5,result=authorized authorized=true,boot_count=3i,card_id=99i,reader_id=2i
//	door_system,door_id=7 boot_count=0i,message="door held open"
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	processor := ingest.New(topic, codec, store, ingest.WithSink(client))
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Write errors are reported through SetOnError.
package influxdb
