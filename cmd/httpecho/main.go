package main

import (
	"context"

	"github.com/fnproject/httpecho/api/server"
)

func main() {
	ctx := context.Background()
	echoServer := server.NewFromEnv(ctx)
	echoServer.Start(ctx)
}
