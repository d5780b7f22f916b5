// Package main заполняет каталог магазина начальным набором товаров.
// Запускается однократно: очищает каталог и вставляет демонстрационные товары.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/shopcart-system/internal/config"
	"github.com/mmeshcher/shopcart-system/internal/model"
	"github.com/mmeshcher/shopcart-system/internal/repository"
)

var sampleItems = []model.Item{
	{
		Name:        "Laptop Pro",
		PriceCents:  129999,
		Description: "High-performance laptop with 16GB RAM and 512GB SSD",
		Image:       "https://via.placeholder.com/200?text=Laptop+Pro",
	},
	{
		Name:        "Wireless Mouse",
		PriceCents:  2999,
		Description: "Ergonomic wireless mouse with long battery life",
		Image:       "https://via.placeholder.com/200?text=Wireless+Mouse",
	},
	{
		Name:        "USB-C Hub",
		PriceCents:  4999,
		Description: "7-in-1 USB-C hub with HDMI, USB 3.0, and SD card reader",
		Image:       "https://via.placeholder.com/200?text=USB-C+Hub",
	},
	{
		Name:        "Mechanical Keyboard",
		PriceCents:  15999,
		Description: "RGB mechanical keyboard with customizable switches",
		Image:       "https://via.placeholder.com/200?text=Mechanical+Keyboard",
	},
	{
		Name:        "4K Monitor",
		PriceCents:  39999,
		Description: "32-inch 4K UHD monitor with HDR support",
		Image:       "https://via.placeholder.com/200?text=4K+Monitor",
	},
	{
		Name:        "Wireless Headphones",
		PriceCents:  19999,
		Description: "Noise-cancelling wireless headphones with 30-hour battery",
		Image:       "https://via.placeholder.com/200?text=Wireless+Headphones",
	},
	{
		Name:        "Portable SSD",
		PriceCents:  12999,
		Description: "1TB portable external SSD with fast data transfer",
		Image:       "https://via.placeholder.com/200?text=Portable+SSD",
	},
	{
		Name:        "Webcam 4K",
		PriceCents:  7999,
		Description: "4K resolution webcam with auto-focus and built-in microphone",
		Image:       "https://via.placeholder.com/200?text=Webcam+4K",
	},
	{
		Name:        "USB-C Cable (2m)",
		PriceCents:  1999,
		Description: "High-quality USB-C cable with fast charging support",
		Image:       "https://via.placeholder.com/200?text=USB-C+Cable",
	},
	{
		Name:        "Phone Stand",
		PriceCents:  2499,
		Description: "Adjustable phone stand compatible with all devices",
		Image:       "https://via.placeholder.com/200?text=Phone+Stand",
	},
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repo.CheckReady(ctx); err != nil {
		sugar.Fatalw("database not available", "error", err.Error())
	}

	if err := repo.DeleteAllItems(ctx); err != nil {
		sugar.Fatalw("clear items error", "error", err.Error())
	}
	sugar.Info("cleared existing items")

	for _, item := range sampleItems {
		created, err := repo.CreateItem(ctx, item)
		if err != nil {
			sugar.Fatalw("insert item error", "name", item.Name, "error", err.Error())
		}
		sugar.Infow("inserted item", "name", created.Name, "price", float64(created.PriceCents)/100)
	}

	sugar.Infow("seeding finished", "items", len(sampleItems))
}
