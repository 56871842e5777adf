package bot

import "testing"

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in      string
		command string
		payload string
	}{
		{"/today", "today", ""},
		{"/setup 9 Europe/Belgrade", "setup", "9 Europe/Belgrade"},
		{"/today@holiday_bot", "today", ""},
		{"/SEARCH pizza", "search", "pizza"},
	}
	for _, c := range cases {
		command, payload := splitCommand(c.in)
		if command != c.command || payload != c.payload {
			t.Fatalf("%q: ожидалось (%q, %q), получено (%q, %q)", c.in, c.command, c.payload, command, payload)
		}
	}
}

func TestParseSetupArgs(t *testing.T) {
	params, err := parseSetupArgs(42, "9:30 America/New_York tone=silly skip_weekends=on streak_goal=5")
	if err != nil {
		t.Fatalf("parseSetupArgs: %v", err)
	}
	if params.DestinationID != 42 {
		t.Fatalf("канал должен совпадать с чатом, получено %d", params.DestinationID)
	}
	if params.Hour != 9 || params.Minute != 30 {
		t.Fatalf("ожидалось 9:30, получено %d:%d", params.Hour, params.Minute)
	}
	if params.Timezone != "America/New_York" {
		t.Fatalf("часовой пояс не разобран: %q", params.Timezone)
	}
	if params.Tone == nil || *params.Tone != "silly" {
		t.Fatal("тон не разобран")
	}
	if params.SkipWeekends == nil || !*params.SkipWeekends {
		t.Fatal("skip_weekends не разобран")
	}
	if params.StreakGoal == nil || *params.StreakGoal != 5 {
		t.Fatal("streak_goal не разобран")
	}
}

func TestParseSetupArgsFilterOptions(t *testing.T) {
	params, err := parseSetupArgs(1, "9 no_food=on only_weird=on safe_mode=on blacklist=casino,bets")
	if err != nil {
		t.Fatalf("parseSetupArgs: %v", err)
	}
	if params.NoFood == nil || !*params.NoFood {
		t.Fatal("no_food не разобран")
	}
	if params.OnlyWeird == nil || !*params.OnlyWeird {
		t.Fatal("only_weird не разобран")
	}
	if params.SafeMode == nil || !*params.SafeMode {
		t.Fatal("safe_mode не разобран")
	}
	if params.Blacklist == nil || len(*params.Blacklist) != 2 || (*params.Blacklist)[1] != "bets" {
		t.Fatalf("blacklist не разобран: %v", params.Blacklist)
	}

	params, err = parseSetupArgs(1, "9 blacklist=")
	if err != nil {
		t.Fatalf("parseSetupArgs: %v", err)
	}
	if params.Blacklist == nil || len(*params.Blacklist) != 0 {
		t.Fatal("пустой blacklist должен означать очистку")
	}
}

func TestParseSetupArgsRejectsUnknownOption(t *testing.T) {
	if _, err := parseSetupArgs(1, "9 color=red"); err == nil {
		t.Fatal("ожидалась ошибка для неизвестной опции")
	}
	if _, err := parseSetupArgs(1, "утро"); err == nil {
		t.Fatal("ожидалась ошибка для нечислового часа")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "да"} {
		if !parseBool(v) {
			t.Fatalf("%q должно давать true", v)
		}
	}
	if parseBool("off") {
		t.Fatal("off должно давать false")
	}
}
