package service

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadWatchlist читает список символов, которые стримим с фида.
// Файл configs/symbols.yaml, ключ symbols; env QUOTES_SYMBOLS
// (через viper) перекрывает файл.
func LoadWatchlist() ([]string, error) {
	v := viper.New()
	v.SetConfigName("symbols")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.SetDefault("symbols", []string{})
	v.AutomaticEnv()
	v.SetEnvPrefix("quotes")
	_ = v.BindEnv("symbols")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read symbols config: %w", err)
		}
		// файла нет — работаем от env либо пустого списка
	}

	syms := v.GetStringSlice("symbols")
	if len(syms) == 0 {
		return nil, fmt.Errorf("empty quotes watchlist: set configs/symbols.yaml or QUOTES_SYMBOLS")
	}
	return syms, nil
}
