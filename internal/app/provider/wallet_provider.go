package provider

import (
	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/walletloader"
)

type walletProviderImpl struct {
	loader port.WalletProvider
	logger port.Logger

	loaded  bool
	wallets []entity.Wallet
}

// NewWalletProvider creates a WalletProvider that reads the address file once
// and serves the parsed list afterwards.
func NewWalletProvider(filePath string, logger port.Logger) port.WalletProvider {
	return &walletProviderImpl{
		loader: walletloader.NewWalletFileLoader(filePath, logger.Info),
		logger: logger,
	}
}

// GetWallets loads wallet addresses from the configured file.
func (p *walletProviderImpl) GetWallets() ([]entity.Wallet, error) {
	if p.loaded {
		return p.wallets, nil
	}

	wallets, err := p.loader.GetWallets()
	if err != nil {
		p.logger.Error("Failed to load wallets", "error", err)
		return nil, err
	}

	p.wallets = wallets
	p.loaded = true
	return wallets, nil
}
