// Command admintoken prints a signed admin JWT for the /api/v1/admin routes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"qrpay-gateway/config"
	"qrpay-gateway/internal/adapter/http/dto"
	"qrpay-gateway/internal/core/ports"
	"qrpay-gateway/internal/service"
)

func main() {
	subject := flag.String("subject", "admin", "admin identity recorded on adjustments")
	configPath := flag.String("config", "", "path to config.yaml (defaults to ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	token, expiry, err := tokenSvc.Generate(*subject, ports.RoleAdmin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(dto.IssueTokenResponse{Token: token, Expiry: expiry.Unix()})
}
