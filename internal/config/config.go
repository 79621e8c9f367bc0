package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Buffer   BufferConfig   `mapstructure:"buffer"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Driver       string        `mapstructure:"driver"`    // bugst 或 tarm
	MockMode     bool          `mapstructure:"mock_mode"` // 调试模式（使用回环模拟串口）
	Port         string        `mapstructure:"port"`      // 为空时自动选择第一个可用串口
	BaudRate     int           `mapstructure:"baud_rate"`
	DataBits     int           `mapstructure:"data_bits"`
	StopBits     int           `mapstructure:"stop_bits"`
	Parity       string        `mapstructure:"parity"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CloseTimeout time.Duration `mapstructure:"close_timeout"`
	Patterns     []string      `mapstructure:"patterns"` // tarm驱动的设备匹配模式
}

// BufferConfig 接收缓冲区配置
type BufferConfig struct {
	MaxLines int `mapstructure:"max_lines"`
}

// ServerConfig HTTP控制接口配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	RetentionDays   int           `mapstructure:"retention_days"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg *Config
	mu  sync.RWMutex
	v   *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	nv, loaded, err := load(configPath)
	if err != nil {
		return err
	}

	v = nv
	cfg = loaded
	return nil
}

// Load 读取配置但不替换全局实例（用于测试和工具）
func Load(configPath string) (*Config, error) {
	_, loaded, err := load(configPath)
	return loaded, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	nv := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath("./config")
		nv.AddConfigPath(".")
	}

	// 设置环境变量前缀
	nv.SetEnvPrefix("SERIALCFG")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	setDefaults(nv)

	if err := nv.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := nv.Unmarshal(loaded); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		return nil, nil, err
	}

	return nv, loaded, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 串口默认配置（8N1，9600）
	v.SetDefault("serial.driver", "bugst")
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "100ms")
	v.SetDefault("serial.open_timeout", "3s")
	v.SetDefault("serial.write_timeout", "3s")
	v.SetDefault("serial.close_timeout", "3s")
	v.SetDefault("serial.patterns", []string{
		"/dev/ttyACM*",
		"/dev/ttyUSB*",
		"/dev/cu.usbmodem*",
		"/dev/cu.usbserial*",
	})

	v.SetDefault("buffer.max_lines", 8)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/serialcfg.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.retention_days", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "serialcfg.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Serial.Driver {
	case "bugst", "tarm":
	default:
		return fmt.Errorf("unsupported serial driver %q: expected bugst or tarm", c.Serial.Driver)
	}
	if c.Buffer.MaxLines <= 0 {
		return fmt.Errorf("buffer.max_lines must be positive, got %d", c.Buffer.MaxLines)
	}
	for name, d := range map[string]time.Duration{
		"serial.open_timeout":  c.Serial.OpenTimeout,
		"serial.write_timeout": c.Serial.WriteTimeout,
		"serial.close_timeout": c.Serial.CloseTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	mu.RLock()
	watched := v
	mu.RUnlock()
	if watched == nil {
		return
	}

	watched.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := watched.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	watched.WatchConfig()
}
