package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/database"
	"github.com/quizdesk/quizdesk-backend/internal/logger"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)

	fmt.Println("=== Seeding 50 Students ===")

	names := []string{
		"Alice Johnson", "Ben Carter", "Chloe Davis", "Daniel Evans", "Emma Foster",
		"Finn Gallagher", "Grace Hughes", "Henry Irving", "Isla Jenkins", "Jack Kelly",
		"Katie Lewis", "Liam Mitchell", "Mia Nelson", "Noah Owens", "Olivia Parker",
		"Peter Quinn", "Quinn Roberts", "Ruby Stevens", "Samuel Turner", "Tara Underwood",
		"Umar Vance", "Violet Walker", "William Xu", "Xander Young", "Yara Zimmerman",
		"Aaron Brooks", "Bella Clarke", "Caleb Dixon", "Daisy Ellis", "Ethan Ford",
		"Freya Grant", "George Harris", "Hazel Ingram", "Isaac James", "Jade Knight",
		"Kyle Lawson", "Luna Morgan", "Mason Norris", "Nina Osborne", "Owen Price",
		"Poppy Reed", "Ryan Shaw", "Sofia Thompson", "Tyler Upton", "Una Vaughn",
		"Victor Webb", "Willow Xiong", "Yusuf Yates", "Zara Adams", "Zane Bishop",
	}

	// One shared hash keeps the seed fast; every seeded account uses the
	// same development password.
	hash, err := bcrypt.GenerateFromPassword([]byte("quizdesk-dev"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash seed password")
	}

	successCount := 0
	for i := 0; i < 50; i++ {
		student := &model.Student{
			Username:     fmt.Sprintf("student%02d", i+1),
			Name:         names[i],
			PasswordHash: string(hash),
		}

		if err := studentRepo.Create(ctx, student); err != nil {
			fmt.Printf("Error creating student %s (%s): %v\n", student.Name, student.Username, err)
		} else {
			successCount++
			if (i+1)%10 == 0 {
				fmt.Printf("Created %d students...\n", i+1)
			}
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/50 students.\n", successCount)
}
