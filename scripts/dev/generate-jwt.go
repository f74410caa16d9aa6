package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	secret  = flag.String("secret", "dev-secret", "HMAC secret matching the gateway's auth.jwtSecret")
	subject = flag.String("sub", "user123", "token subject")
	ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
)

func main() {
	flag.Parse()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   *subject,
		"iss":   "freightgate-dev",
		"scope": "api:read api:write",
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(*secret))
	if err != nil {
		log.Fatal("Failed to sign token:", err)
	}

	fmt.Println("JWT Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Use this token with:")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/orders\n", tokenString)
}
