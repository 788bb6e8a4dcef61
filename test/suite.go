// Package test contains the docker based integration test suite. It
// boots postgres and kafka in containers and runs the real backend
// against them.
package test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/classbase/classbase/core/backend"
	"github.com/classbase/classbase/core/client"
	"github.com/classbase/classbase/core/csql"
	"github.com/classbase/classbase/core/notify"
)

const masterKey = "integration-test-master-key"
const eventTopic = "classbase-events"

type IntegrationTestSuite struct {
	*backend.Backend
	suite.Suite

	srv    *http.Server
	dbConn *csql.DB
	router *mux.Router
	client client.Client

	network           testcontainers.Network
	kafkaContainer    testcontainers.Container
	postgresContainer testcontainers.Container
	kafkaConn         *kafka.Conn
	kafkaAddr         string
}

func (s *IntegrationTestSuite) createTopic(topic string, numPartitions int) error {
	if s.kafkaConn == nil {
		return fmt.Errorf("kafka connection is not established")
	}

	err := s.kafkaConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     numPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	// Create a shared Docker network for Kafka and Zookeeper
	networkName := "test-kafka-network_" + fmt.Sprintf("%d", time.Now().Unix())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name:           networkName,
			CheckDuplicate: true,
		},
	})
	s.Require().NoError(err)
	s.network = network

	// Start PostgreSQL container
	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"postgres"}},
		WaitingFor:     wait.ForListeningPort("5432/tcp"),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	zooReq := testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-zookeeper:7.5.0",
		ExposedPorts: []string{"2181/tcp"},
		Env: map[string]string{
			"ZOOKEEPER_CLIENT_PORT": "2181",
			"ZOOKEEPER_TICK_TIME":   "2000",
		},
		WaitingFor:     wait.ForListeningPort("2181/tcp"),
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"zookeeper"}},
	}
	_, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: zooReq,
		Started:          true,
	})
	s.Require().NoError(err)

	kafkaReq := testcontainers.ContainerRequest{
		Image:        "confluentinc/cp-kafka:7.5.0",
		ExposedPorts: []string{"9092:9092/tcp", "29092:29092/tcp"},
		Env: map[string]string{
			"KAFKA_BROKER_ID":                        "1",
			"KAFKA_ZOOKEEPER_CONNECT":                "zookeeper:2181",
			"KAFKA_LISTENERS":                        "PLAINTEXT://0.0.0.0:9092,PLAINTEXT_HOST://0.0.0.0:29092,EXTERNAL://0.0.0.0:9093",
			"KAFKA_ADVERTISED_LISTENERS":             "PLAINTEXT://localhost:9092,PLAINTEXT_HOST://localhost:29092,EXTERNAL://kafka:9093",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":   "PLAINTEXT:PLAINTEXT,PLAINTEXT_HOST:PLAINTEXT,EXTERNAL:PLAINTEXT",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR": "1",
			"ALLOW_PLAINTEXT_LISTENER":               "yes",
		},
		WaitingFor:     wait.ForLog("started (kafka.server.KafkaServer)"),
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"kafka"}},
	}
	kafkaC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: kafkaReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.kafkaContainer = kafkaC

	kafkaHost, err := kafkaC.Host(ctx)
	s.Require().NoError(err)
	kafkaPort, err := kafkaC.MappedPort(ctx, "9092")
	s.Require().NoError(err)
	s.kafkaAddr = fmt.Sprintf("%s:%s", kafkaHost, kafkaPort.Port())

	s.kafkaConn, err = kafka.Dial("tcp", s.kafkaAddr)
	s.Require().NoError(err)

	err = s.createTopic(eventTopic, 1)
	s.Require().NoError(err, "failed to create event topic")

	s.router = mux.NewRouter()
	s.dbConn = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresPassword, postgresDB), "integration")

	configurationJSON := `{
		"classes": [
		  {
			"class": "user",
			"fields": ["name"]
		  },
		  {
			"class": "todo",
			"fields": ["title", "done", "owner"],
			"notifications": ["create", "delete"]
		  }
		]
	  }
	`
	bb := backend.Builder{
		DB:        s.dbConn,
		Router:    s.router,
		Config:    configurationJSON,
		MasterKey: masterKey,
		Notifier:  notify.NewKafkaNotifier([]string{s.kafkaAddr}, eventTopic),
	}
	s.Backend = backend.New(&bb)
	s.client = client.NewWithRouter(s.router).WithMasterKey(masterKey)

	s.srv = &http.Server{
		Addr:    ":8080",
		Handler: s.router,
	}
	go func() {
		err := s.srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.T().Errorf("failed to start HTTP server: %v", err)
		}
	}()
}

// eventReader returns a reader over the event topic, starting at the
// first offset.
func (s *IntegrationTestSuite) eventReader() *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{s.kafkaAddr},
		Topic:       eventTopic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.srv != nil {
		err := s.srv.Shutdown(ctx)
		s.Require().NoError(err)
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.kafkaContainer != nil {
		err := s.kafkaContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
	if s.postgresContainer != nil {
		err := s.postgresContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
}
