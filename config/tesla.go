package config

import (
	"github.com/kilianp07/teslamqtt/auth"
	"github.com/kilianp07/teslamqtt/infra/tesla"
)

// TeslaConfig groups the owner API settings.
type TeslaConfig struct {
	Auth auth.Conf    `json:"auth"`
	API  tesla.Config `json:"api"`
}

func (c *TeslaConfig) SetDefaults() {
	c.Auth.SetDefaults()
	c.API.SetDefaults()
}

func (c TeslaConfig) Validate() error {
	return c.Auth.Validate()
}
