package conversation

// メインメニューと設定メニューのトリガー文言。
// 旧Telegramボットのメニューボタンの文言をそのまま使用する。
const (
	TriggerNewReminder    = "➕ New Reminder"
	TriggerListReminders  = "📋 List of Reminders"
	TriggerDeleteReminder = "❌ Delete Reminder"
	TriggerSettings       = "⚙ Settings"
	TriggerToggleFormat   = "🕒 Toggle Time Format (12h/24h)"
	TriggerBackToMain     = "↩️ Back to Main Menu"
)

// Menu は返信に添付するボタンメニュー。行ごとのボタンラベルの列。
type Menu [][]string

// MainMenu はIdle状態で表示するメインメニューを返す。
func MainMenu() Menu {
	return Menu{
		{TriggerNewReminder, TriggerListReminders},
		{TriggerDeleteReminder, TriggerSettings},
	}
}

// SettingsMenu は設定メニューを返す。
func SettingsMenu() Menu {
	return Menu{
		{TriggerToggleFormat},
		{TriggerBackToMain},
	}
}
