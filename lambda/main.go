package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/mabumusa1/ses-plugin/config"
	"github.com/mabumusa1/ses-plugin/handler"
	"github.com/mabumusa1/ses-plugin/transport"
)

func buildHandler(ctx context.Context) (*handler.LambdaHandler, error) {
	opts, err := config.GetOptions(os.Getenv)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(ctx, opts, log.Default())
	if err != nil {
		return nil, err
	}
	return tr.LambdaHandler(), nil
}

func main() {
	// Disable standard logger flags. The CloudWatch logs show that the Lambda
	// runtime already adds a timestamp at the beginning of every log line
	// emitted by the function.
	log.SetFlags(0)

	if h, err := buildHandler(context.Background()); err != nil {
		log.Fatalf("Failed to initialize process: %s", err.Error())
	} else {
		lambda.Start(h.HandleEvent)
	}
}
