package config

import (
	"flag"
	"github.com/ilyakaznacheev/cleanenv"
	"os"
)

type Config struct {
	Env       string `yaml:"env" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort   int    `yaml:"api_port" env-default:"8080"`
	ApiHost   string `yaml:"api_host" env-default:"localhost"`
	JwtSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"secret42212"`
	Bank      `yaml:"bank"`
}

type Bank struct {
	AllowNegativeBalance bool   `yaml:"allow_negative_balance" env-default:"false"`
	InitialBalance       string `yaml:"initial_balance" env-default:"1000"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
