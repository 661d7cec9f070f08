package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port int    `mapstructure:"port"`
		Mode string `mapstructure:"mode"`
		// адреса или подсети прокси, которым доверяется X-Forwarded-For
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"cors"`
	DB struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		Name         string `mapstructure:"name"`
		SSLMode      string `mapstructure:"sslmode"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		AutoMigrate  bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"db"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
		ExpiresIn int    `mapstructure:"expires_in"` // в часах
	} `mapstructure:"jwt"`
	Auth struct {
		AllowSignUp bool `mapstructure:"allow_sign_up"`
	} `mapstructure:"auth"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	Notify struct {
		Recipients []string `mapstructure:"recipients"`
		MinAmount  string   `mapstructure:"min_amount"`
	} `mapstructure:"notify"`
	Ledger struct {
		DefaultCurrency    string        `mapstructure:"default_currency"`
		RecentTransactions int           `mapstructure:"recent_transactions"`
		ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
	} `mapstructure:"ledger"`
	RateLimit struct {
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
	} `mapstructure:"rate_limit"`
	Log struct {
		Mode string `mapstructure:"mode"`
		Dir  string `mapstructure:"dir"`
	} `mapstructure:"log"`
}

// setDefaults задает значения по умолчанию для всех ключей.
// Без них viper не подхватит переменные окружения при Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "ledger_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("jwt.secret_key", "your-secret-key-here")
	v.SetDefault("jwt.expires_in", 24)
	v.SetDefault("auth.allow_sign_up", false)

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("notify.recipients", []string{})
	v.SetDefault("notify.min_amount", "0")

	v.SetDefault("ledger.default_currency", "USD")
	v.SetDefault("ledger.recent_transactions", 10)
	v.SetDefault("ledger.reconcile_interval", "0s")

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("log.mode", "release")
	v.SetDefault("log.dir", "")
}

// NewConfig создает новый экземпляр конфигурации.
// path может быть пустым: тогда используются значения по умолчанию и переменные окружения.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// DB_HOST -> db.host, JWT_SECRET_KEY -> jwt.secret_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Notify.Recipients = splitList(cfg.Notify.Recipients)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Ledger.DefaultCurrency = strings.ToUpper(cfg.Ledger.DefaultCurrency)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList разбирает список из переменной окружения, которая приходит одной строкой через запятую
func splitList(values []string) []string {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.DB.Port <= 0 {
		return fmt.Errorf("invalid database port: %d", c.DB.Port)
	}
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt secret key must not be empty")
	}
	if c.JWT.ExpiresIn <= 0 {
		return fmt.Errorf("invalid jwt lifetime: %d", c.JWT.ExpiresIn)
	}
	if len(c.Ledger.DefaultCurrency) != 3 {
		return fmt.Errorf("invalid default currency: %q", c.Ledger.DefaultCurrency)
	}
	if c.Ledger.RecentTransactions <= 0 {
		return fmt.Errorf("invalid recent transactions limit: %d", c.Ledger.RecentTransactions)
	}
	if c.Ledger.ReconcileInterval < 0 {
		return fmt.Errorf("invalid reconcile interval: %s", c.Ledger.ReconcileInterval)
	}
	if _, err := c.NotifyThreshold(); err != nil {
		return err
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyNets разбирает server.trusted_proxies. Одиночный адрес превращается в подсеть /32 или /128.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.Server.TrustedProxies))
	for _, value := range c.Server.TrustedProxies {
		if !strings.Contains(value, "/") {
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy: %q", value)
			}
			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

// NotifyThreshold возвращает минимальную сумму операции для email-уведомления
func (c *Config) NotifyThreshold() (decimal.Decimal, error) {
	if c.Notify.MinAmount == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(c.Notify.MinAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid notify min amount %q: %w", c.Notify.MinAmount, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("notify min amount must not be negative: %s", d)
	}
	return d, nil
}

// DSN формирует строку подключения для gorm
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// MigrationURL формирует URL для golang-migrate
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.Name,
		c.DB.SSLMode,
	)
}
