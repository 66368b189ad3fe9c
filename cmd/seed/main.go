package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/database"
	"github.com/quizdesk/quizdesk-backend/internal/logger"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// Interactive tool to create an admin or student account. Usage:
//
//	seed admin
//	seed student
func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	kind := "admin"
	if len(os.Args) > 1 {
		kind = os.Args[1]
	}
	if kind != "admin" && kind != "student" {
		fmt.Println("Usage: seed [admin|student]")
		return
	}

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("=== Create New Account (%s) ===\n", kind)

	// Name
	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	// Username
	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	// Hash Password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	switch kind {
	case "admin":
		admin := &model.Admin{
			Name:         name,
			Username:     username,
			PasswordHash: string(hashedPassword),
		}
		if err := repository.NewAdminRepository(pool).Create(ctx, admin); err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin")
		}
		fmt.Printf("\nSuccess! Admin '%s' (%s) created with ID: %d\n", admin.Name, admin.Username, admin.ID)
	case "student":
		student := &model.Student{
			Name:         name,
			Username:     username,
			PasswordHash: string(hashedPassword),
		}
		if err := repository.NewStudentRepository(pool).Create(ctx, student); err != nil {
			log.Fatal().Err(err).Msg("Failed to create student")
		}
		fmt.Printf("\nSuccess! Student '%s' (%s) created with ID: %d\n", student.Name, student.Username, student.ID)
	}
}
