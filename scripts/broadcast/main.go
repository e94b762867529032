package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	if err := run(); err != nil {
		log.Printf("broadcast: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8888", "relay base URL")
	token := flag.String("token", os.Getenv("WIRECHAT_ADMIN_TOKEN"), "operator bearer token")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New(`usage: broadcast [-server URL] [-token T] "message"`)
	}

	body, err := json.Marshal(map[string]string{"msg": flag.Arg(0)})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *server+"/api/broadcast/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", *server, err)
	}
	defer resp.Body.Close()

	content, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%d - %s", resp.StatusCode, content)
	}
	fmt.Println("Message sent successfully")
	return nil
}
