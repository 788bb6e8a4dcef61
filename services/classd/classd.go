// Classd is the standalone classbase server. It serves the configured
// record classes over REST, backed by postgres.
package main

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/classbase/classbase/core/backend"
	"github.com/classbase/classbase/core/csql"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/notify"
	"github.com/classbase/classbase/core/session"
)

var configurationJSON string = `
{
	"classes": [
	  {
		"class": "user",
		"fields": ["name"]
	  },
	  {
		"class": "todo",
		"fields": ["title", "done", "owner"],
		"notifications": ["create", "update", "delete"]
	  }
	]
}
`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres     string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	MasterKey    string `env:"MASTER_KEY,required" description:"the master key unlocking unrestricted access"`
	Port         string `env:"PORT,default=:3000" description:"the listen address"`
	KafkaBrokers string `env:"KAFKA_BROKERS,optional" description:"comma separated kafka brokers for record events"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=classbase-events" description:"the kafka topic for record events"`
	RedisAddr    string `env:"REDIS_ADDR,optional" description:"redis address for the session store; default is postgres"`
}

func main() {
	logger.InitLogger(logrus.InfoLevel)

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	db := csql.OpenWithSchema(service.Postgres, "classbase")
	defer db.Close()

	builder := backend.Builder{
		Config:    configurationJSON,
		DB:        db,
		Router:    mux.NewRouter(),
		MasterKey: service.MasterKey,
	}
	if service.KafkaBrokers != "" {
		notifier := notify.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer notifier.Close()
		builder.Notifier = notifier
	} else {
		builder.Notifier = notify.LogNotifier{}
	}
	if service.RedisAddr != "" {
		builder.SessionStore = session.NewRedisStore(redis.NewClient(&redis.Options{Addr: service.RedisAddr}))
	}
	backend.New(&builder)

	logger.Default().Infoln("listen on", service.Port)
	http.ListenAndServe(service.Port, builder.Router)
}
