// Package i18n holds the user-facing CLI strings in English and Russian.
package i18n

type Messages struct {
	RootShort string

	PasswordPrompt         string
	PasswordConfirm        string
	PasswordMismatch       string
	PasswordWarning        string
	PassphrasePrompt       string
	HintPrompt             string
	MnemonicPrompt         string
	KeystorePasswordPrompt string

	GenerateDone    string
	GenerateAborted string
	StreamDone      string
	OutputWritten   string
	ImportDone      string

	ValidateOK     string
	ValidateIssues string

	ListEmpty     string
	ListHeader    string
	ListEncrypted string
	ListPlain     string

	KeystoreExported string
	KeystoreImported string
	ConfigWritten    string
}

func Get(lang string) Messages {
	switch lang {
	case "ru":
		return Messages{
			RootShort: "Генератор Ethereum-кошельков (BIP-39/BIP-44) с шифрованным хранилищем",

			PasswordPrompt:         "Пароль хранилища: ",
			PasswordConfirm:        "Повтори пароль: ",
			PasswordMismatch:       "пароли не совпадают",
			PasswordWarning:        "Внимание: %v\n",
			PassphrasePrompt:       "BIP-39 passphrase (Enter если не нужна): ",
			HintPrompt:             "Подсказка к паролю (сохранится в hint.txt, Enter чтобы пропустить): ",
			MnemonicPrompt:         "Мнемоническая фраза: ",
			KeystorePasswordPrompt: "Пароль keystore: ",

			GenerateDone:    "Сгенерировано кошельков: %d за %s\n",
			GenerateAborted: "Генерация прервана: готово %d из %d (%v)\n",
			StreamDone:      "Записано кошельков: %d в %s\n",
			OutputWritten:   "Файл: %s\n",
			ImportDone:      "Импортировано кошельков: %d\n",

			ValidateOK:     "%s: кошельков %d, все корректны\n",
			ValidateIssues: "%s: корректны %d из %d, проблем: %d\n",

			ListEmpty:     "Файлы кошельков не найдены",
			ListHeader:    "%-40s %-6s %-10s %8s %s\n",
			ListEncrypted: "зашифр.",
			ListPlain:     "открыт",

			KeystoreExported: "Keystore: успешно %d, ошибок %d -> %s\n",
			KeystoreImported: "Из keystore: успешно %d, ошибок %d\n",
			ConfigWritten:    "Конфиг записан: %s\n",
		}
	default: // "en"
		return Messages{
			RootShort: "Ethereum wallet generator (BIP-39/BIP-44) with an encrypted vault",

			PasswordPrompt:         "Vault password: ",
			PasswordConfirm:        "Repeat password: ",
			PasswordMismatch:       "passwords do not match",
			PasswordWarning:        "Warning: %v\n",
			PassphrasePrompt:       "BIP-39 passphrase (Enter for none): ",
			HintPrompt:             "Optional password hint (saved to hint.txt, Enter to skip): ",
			MnemonicPrompt:         "Mnemonic phrase: ",
			KeystorePasswordPrompt: "Keystore password: ",

			GenerateDone:    "Generated %d wallets in %s\n",
			GenerateAborted: "Generation aborted: %d of %d done (%v)\n",
			StreamDone:      "Wrote %d wallets to %s\n",
			OutputWritten:   "Written: %s\n",
			ImportDone:      "Imported %d wallets\n",

			ValidateOK:     "%s: %d wallets, all valid\n",
			ValidateIssues: "%s: %d of %d wallets valid, %d issues\n",

			ListEmpty:     "No wallet files found",
			ListHeader:    "%-40s %-6s %-10s %8s %s\n",
			ListEncrypted: "encrypted",
			ListPlain:     "plain",

			KeystoreExported: "Keystores: %d ok, %d failed -> %s\n",
			KeystoreImported: "From keystores: %d ok, %d failed\n",
			ConfigWritten:    "Config written to %s\n",
		}
	}
}
