package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/vorteil/vhd-tools/pkg/elog"
	"github.com/vorteil/vhd-tools/pkg/storage"
	"github.com/vorteil/vhd-tools/pkg/vhdcopy"
	"github.com/vorteil/vhd-tools/pkg/vhdparser"
)

const (
	configFileName = "vhd-cli"

	configCopyConcurrency    = "copy.concurrency"
	configS3Region           = "s3.region"
	configS3Endpoint         = "s3.endpoint"
	configS3ForcePathStyle   = "s3.forcePathStyle"
	configS3Profile          = "s3.profile"
	configGCSCredentialsFile = "gs.credentialsFile"
	configAzureAccountName   = "azure.accountName"
	configAzureAccountKey    = "azure.accountKey"
	configExportCodec        = "export.codec"
)

func setDefaults() {
	viper.SetDefault(configCopyConcurrency, vhdcopy.DefaultConcurrency)
	viper.SetDefault(configExportCodec, string(vhdparser.CodecGzip))
	viper.SetDefault(configS3ForcePathStyle, false)
}

// reads in config file, uses defaults if not found
func initConfig(cfgFile string, log elog.View) {

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			log.Debugf("%s", err.Error())
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(configFileName)
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else {
		log.Debugf("%s", err.Error())
		log.Debugf("using default settings")
	}
}

func storageConfig() *storage.Config {
	return &storage.Config{
		S3Region:           viper.GetString(configS3Region),
		S3Endpoint:         viper.GetString(configS3Endpoint),
		S3ForcePathStyle:   viper.GetBool(configS3ForcePathStyle),
		S3Profile:          viper.GetString(configS3Profile),
		GCSCredentialsFile: viper.GetString(configGCSCredentialsFile),
		AzureAccountName:   viper.GetString(configAzureAccountName),
		AzureAccountKey:    viper.GetString(configAzureAccountKey),
	}
}
