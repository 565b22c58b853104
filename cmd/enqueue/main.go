// Command enqueue publishes an analysis request for a video already placed on
// the worker's spool volume.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/config"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/infra/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	name := flag.String("name", "", "display name of the analysis")
	video := flag.String("video", "", "path to the video as seen by the worker")
	flag.Parse()

	if err := run(*name, *video); err != nil {
		fmt.Fprintln(os.Stderr, "enqueue:", err)
		os.Exit(1)
	}
}

func run(name, video string) error {
	if name == "" || video == "" {
		return fmt.Errorf("both -name and -video are required")
	}
	abs, err := filepath.Abs(video)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	err = pub.DeclareTopology(rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQAnalysisQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
	})
	if err != nil {
		return err
	}

	msg := entity.RunRequestMessage{RequestID: uuid.New(), DisplayName: name, VideoPath: abs}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pub.PublishRequest(ctx, body); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	fmt.Println(msg.RequestID)
	return nil
}
