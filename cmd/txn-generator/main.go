package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loyalty-points-system/internal/auth"
	"loyalty-points-system/internal/core/domain"
)

// PurchaseRequest matches the body POST /api/v1/transactions expects for a purchase.
type PurchaseRequest struct {
	Type   string          `json:"type"`
	UTORid string          `json:"utorid"`
	Spent  decimal.Decimal `json:"spent"`
	Remark string          `json:"remark"`
}

func main() {
	// 1. Setting up flags
	targetURL := flag.String("target", "http://localhost:8080/api/v1/transactions", "Target URL for sending purchases")
	rps := flag.Int("rps", 20, "Requests per second")
	cashierID := flag.Int64("cashier", 1, "Account id of the cashier the token is minted for")
	customers := flag.String("customers", "", "Comma separated utorids to credit")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the ledger")
	flag.Parse()

	if *customers == "" || *rps <= 0 {
		log.Fatal("-customers is required and -rps must be positive")
	}
	utorids := strings.Split(*customers, ",")

	issuer, err := auth.NewTokenIssuer(*secret, "", time.Hour)
	if err != nil {
		log.Fatalf("cannot mint tokens: %v", err)
	}
	token, err := issuer.Issue(*cashierID, domain.RoleCashier)
	if err != nil {
		log.Fatalf("cannot mint token: %v", err)
	}

	log.Printf("Starting generator: target=%s, rps=%d, customers=%d\n", *targetURL, *rps, len(utorids))

	// 2. Managing the request frequency via ticker
	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	// 3. Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}

	// 4. Main loop
	for {
		select {
		case <-ticker.C:
			// Start sending in a goroutine so as not to block the ticker
			go sendRequest(ctx, client, *targetURL, token, fakePurchase(utorids))
		case <-ctx.Done():
			log.Println("Shutting down generator...")
			return
		}
	}
}

// fakePurchase picks a customer and a spend between 0.01 and 200.00.
func fakePurchase(utorids []string) PurchaseRequest {
	return PurchaseRequest{
		Type:   string(domain.TypePurchase),
		UTORid: utorids[rand.Intn(len(utorids))],
		Spent:  decimal.New(int64(rand.Intn(20000)+1), -2),
		Remark: faker.Sentence(),
	}
}

func sendRequest(ctx context.Context, client *http.Client, url, token string, reqData PurchaseRequest) {
	body, err := json.Marshal(reqData)
	if err != nil {
		log.Printf("ERROR: failed to marshal request: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("ERROR: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("ERROR: failed to send request: %v", err)
		return
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body : %v", err)
		}
	}()

	if resp.StatusCode != http.StatusCreated {
		log.Printf("WARN: received non-201 status code: %d", resp.StatusCode)
	} else {
		log.Printf("INFO: purchase recorded for %s, spent %s", reqData.UTORid, reqData.Spent.StringFixed(2))
	}
}
