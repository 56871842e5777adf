package promo

import (
	"testing"
	"time"

	"tg-holiday-bot/internal/domain"
)

func TestCanShowWindows(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	cfg := domain.TenantConfig{PromotionsEnabled: true}

	if !CanShow(cfg, domain.PromptVote, now) {
		t.Fatalf("первый показ должен быть разрешён")
	}
	MarkShown(&cfg, domain.PromptVote, now)
	if CanShow(cfg, domain.PromptVote, now.Add(24*time.Hour)) {
		t.Fatalf("окно vote семь дней, показ через день запрещён")
	}
	if !CanShow(cfg, domain.PromptVote, now.Add(7*24*time.Hour)) {
		t.Fatalf("через семь дней показ снова разрешён")
	}
}

func TestWindowsIndependent(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	cfg := domain.TenantConfig{PromotionsEnabled: true}
	MarkShown(&cfg, domain.PromptVote, now)
	if !CanShow(cfg, domain.PromptShare, now) {
		t.Fatalf("показ vote не должен сдвигать окно share")
	}
}

func TestPromotionsDisabled(t *testing.T) {
	now := time.Now()
	cfg := domain.TenantConfig{PromotionsEnabled: false}
	if CanShow(cfg, domain.PromptVote, now) {
		t.Fatalf("при выключенных промо показ запрещён безусловно")
	}
	if CanShowForced(cfg, domain.PromptVote) {
		t.Fatalf("force-режим не обходит глобальное отключение")
	}
}

func TestForcedBypassesWindow(t *testing.T) {
	now := time.Now()
	cfg := domain.TenantConfig{PromotionsEnabled: true}
	MarkShown(&cfg, domain.PromptVote, now)
	if !CanShowForced(cfg, domain.PromptVote) {
		t.Fatalf("force-режим должен обходить окно")
	}
}

func TestUnknownKind(t *testing.T) {
	cfg := domain.TenantConfig{PromotionsEnabled: true}
	if CanShow(cfg, domain.PromptKind("bogus"), time.Now()) {
		t.Fatalf("неизвестный вид подсказки не показывается")
	}
}
