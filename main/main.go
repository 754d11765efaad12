package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/rawbytedev/reflexio"
	"github.com/rawbytedev/reflexio/pkg/frame"
)

func main() {
	iterations := flag.Int("n", 10000, "encode/decode iterations")
	codec := flag.String("codec", "none", "frame codec: none, zstd or lz4")
	hold := flag.Duration("hold", 0, "keep the pprof endpoint up this long after the run")
	flag.Parse()

	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	f, err := os.Create("mem.prof")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	runtime.MemProfileRate = 1

	reg := reflexio.NewRegistry(reflexio.WithLogger(reflexio.NewTextLogger(slog.LevelDebug)))
	kind, err := reg.DefineEnum("Kind", reflexio.AutoMember("Raw"), reflexio.AutoMember("Filtered"))
	if err != nil {
		log.Fatal(err)
	}
	typ, err := reg.Define("Sample",
		reflexio.Int64Field("id", 0, "sequence number"),
		reflexio.EnumField("kind", kind, "Raw", "processing stage"),
		reflexio.ArrayField("gains", 4, []float32{1, 1, 1, 1}, "channel gains"),
		reflexio.StringField("source", "sensor-0", "origin"),
		reflexio.VectorField("values", nil, "samples"),
	)
	if err != nil {
		log.Fatal(err)
	}

	var c frame.Codec
	switch *codec {
	case "none":
		c = frame.CodecNone
	case "zstd":
		c = frame.CodecZstd
	case "lz4":
		c = frame.CodecLZ4
	default:
		log.Fatalf("unknown codec %q", *codec)
	}
	enc, err := frame.NewEncoder(c)
	if err != nil {
		log.Fatal(err)
	}
	defer enc.Close()
	dec, err := frame.NewDecoder()
	if err != nil {
		log.Fatal(err)
	}
	defer dec.Close()

	in := typ.New()
	values, _ := in.Get("values")
	values.(*reflexio.VectorRef[float32]).Append(12.13, 16.23, 75.1, 100.5, 165.63, 153.5)
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		if err := in.Set("id", i); err != nil {
			log.Fatal(err)
		}
		data, err := enc.Encode(in)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := dec.Decode(typ, data); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("%d round trips with %s in %s", *iterations, c, time.Since(start))
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Printf("write heap profile: %v", err)
	}
	time.Sleep(*hold)
}
