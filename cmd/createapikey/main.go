package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/makkenzo/vector-gateway-api/internal/config"
	"github.com/makkenzo/vector-gateway-api/internal/domain/identity"
	"github.com/makkenzo/vector-gateway-api/internal/service"
	"github.com/makkenzo/vector-gateway-api/internal/storage/registry"
	"go.uber.org/zap"
)

// createapikey issues a key straight against the registry. It is how the
// first admin key gets made on a server with auth enabled.
func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to configuration file")
	name := flag.String("name", "bootstrap-admin", "Display name for the key")
	permissions := flag.String("permissions", string(identity.PermissionAdmin), "Comma separated permissions (read, write, admin)")
	flag.Parse()

	cfg, err := config.LoadRegistryConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()
	backend, err := registry.Open(ctx, &cfg.Database, logger)
	if err != nil {
		log.Fatalf("Unable to open registry: %v", err)
	}
	defer backend.Close()

	keys := service.NewAPIKeyService(backend.APIKeys, logger)
	key, secret, err := keys.IssueAPIKey(ctx, *name, strings.Split(*permissions, ","))
	if err != nil {
		log.Fatalf("Failed to issue API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely!):\n%s\n\n", secret)
	fmt.Printf("ID: %s\n", key.ID)
	fmt.Printf("Prefix: %s\n", key.Prefix)
	fmt.Printf("Permissions: %s\n", strings.Join(identity.Strings(key.Permissions), ","))
}
