// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
	"time"
)

// Source is one MySQL endpoint.
type Source struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func (s Source) DSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.User, s.Password, s.Host, port, s.DBName)
}

func (s Source) valid() bool {
	return s.Host != "" && s.User != "" && s.DBName != ""
}

// MySQL holds the primary source and optional read replicas. Reads routed
// through ReadDB go to a replica when any are configured.
type MySQL struct {
	Source   `mapstructure:",squash"`
	Replicas []Source `mapstructure:"replicas"`
}

type ClickHouse struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	DBName      string        `mapstructure:"dbname"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

func (c ClickHouse) Enabled() bool {
	return c.Host != "" && c.DBName != ""
}

func (c ClickHouse) DSN() string {
	port := c.Port
	if port == 0 {
		port = 9000
	}
	dial, read := c.DialTimeout, c.ReadTimeout
	if dial == 0 {
		dial = 10 * time.Second
	}
	if read == 0 {
		read = 20 * time.Second
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s?dial_timeout=%s&read_timeout=%s",
		c.Username, c.Password, c.Host, port, c.DBName, dial, read)
}

// Conf is the database section of the orchestrator config.
type Conf struct {
	LogSQL       bool          `mapstructure:"logSQL"`
	Trace        bool          `mapstructure:"trace"`
	SlowQuery    time.Duration `mapstructure:"slowQuery"`
	MaxOpenConns int           `mapstructure:"maxOpenConns"`
	MaxIdleConns int           `mapstructure:"maxIdleConns"`
	MaxLifetime  time.Duration `mapstructure:"maxLifetime"`
	MaxIdleTime  time.Duration `mapstructure:"maxIdleTime"`
	MySQL        MySQL         `mapstructure:"mysql"`
	ClickHouse   ClickHouse    `mapstructure:"clickhouse"`
}

func (c *Conf) SetDefaults() {
	if c.SlowQuery == 0 {
		c.SlowQuery = time.Second
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 20
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.MaxIdleTime == 0 {
		c.MaxIdleTime = time.Minute
	}
}

func (c *Conf) Validate() error {
	if !c.MySQL.valid() {
		return fmt.Errorf("mysql host, user and dbname are required")
	}
	for i, r := range c.MySQL.Replicas {
		if !r.valid() {
			return fmt.Errorf("mysql replica %d: host, user and dbname are required", i)
		}
	}
	return nil
}
