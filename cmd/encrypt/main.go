// Command encrypt is an operator utility for preparing .env files: it
// generates encryption keys and encrypts configuration values into the
// ENC:-prefixed form the secret resolver understands.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sf7293/job-notifier/internal/secrets"
)

func main() {
	generateKey := flag.Bool("generate-key", false, "generate a new encryption key and exit")
	value := flag.String("value", "", "value to encrypt with the ENCRYPTION_KEY from the environment")
	flag.Parse()

	if *generateKey {
		key, err := secrets.GenerateKey()
		if err != nil {
			log.Fatalf("Failed to generate encryption key: %v", err)
		}

		fmt.Println("Generated encryption key, add it to your .env file as:")
		fmt.Printf("ENCRYPTION_KEY=%s\n", key)
		return
	}

	if *value == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		log.Fatal("ENCRYPTION_KEY not found in environment, run with -generate-key first")
	}

	encrypted, err := secrets.Encrypt(*value, key)
	if err != nil {
		log.Fatalf("Failed to encrypt value: %v", err)
	}

	fmt.Println("Encrypted value (copy this to your .env file):")
	fmt.Println(encrypted)
}
