package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/patterm/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    gRPC bind address (e.g. ":50051")
//	-w string    HTTP bind address (e.g. ":8080")
//	-d string    PostgreSQL DSN
//	-m string    store backend: postgres | memory
//	-k string    key backend: leveldb | vault | memory
//	-o string    blob backend: fs | s3 | memory
//	-s string    audit checkpoint HMAC secret
//	-t int       session validity, minutes
//	-l duration  per-patient lock wait (e.g. "2s")
//	-v string    log level
//	-origins     comma separated CORS origins
//	-u -p -b -g -e  S3 user, password, bucket, region and endpoint
//
// os.Args is filtered with flagx.FilterArgs first so the config file flag
// and flags of other components do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-w", "-d", "-m", "-k", "-o", "-s", "-t", "-l", "-v", "-origins",
		"-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "w", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StoreBackend, "m", config.StoreBackend, "store backend")
	fs.StringVar(&config.KeyBackend, "k", config.KeyBackend, "patient key backend")
	fs.StringVar(&config.BlobBackend, "o", config.BlobBackend, "encrypted blob backend")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "audit checkpoint secret")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session validity (in minutes)")

	fs.DurationVar(&config.LockTimeout, "l", config.LockTimeout, "per-patient lock wait")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	origins := fs.String("origins", strings.Join(config.AllowedOrigins, ","), "CORS allowed origins")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.AllowedOrigins = splitList(*origins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
