package preferences

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"racetimer/internal/core/model"
)

// Window handles the detector settings UI.
type Window struct {
	window      fyne.Window
	store       Setter
	onSave      func(model.DetectorSettings)
	frequency   *widget.Entry
	threshold   *widget.Entry
	hold        *widget.Entry
	sensitivity *widget.Select
	enabled     *widget.Check
}

// New creates a settings window editing store.
func New(app fyne.App, store Setter, onSave func(model.DetectorSettings)) *Window {
	window := app.NewWindow("Auto-start Settings")

	frequency := widget.NewEntry()
	threshold := widget.NewEntry()
	hold := widget.NewEntry()

	levels := make([]string, 0, model.MaxSensitivity)
	for level := model.MinSensitivity; level <= model.MaxSensitivity; level++ {
		levels = append(levels, strconv.Itoa(level))
	}
	sensitivity := widget.NewSelect(levels, nil)
	enabled := widget.NewCheck("Start the timer when the tone is heard", nil)

	form := container.NewVBox(
		widget.NewLabelWithStyle("Start tone", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		enabled,
		container.NewHBox(widget.NewLabel("Tone frequency"), frequency, widget.NewLabel(rangeHint(model.FrequencyRange, "Hz"))),
		container.NewHBox(widget.NewLabel("Sensitivity"), sensitivity, widget.NewLabel("1 strict, 5 loose")),
		container.NewHBox(widget.NewLabel("Threshold"), threshold, widget.NewLabel(rangeHint(model.ThresholdRange, "dB"))),
		container.NewHBox(widget.NewLabel("Hold"), hold, widget.NewLabel(rangeHint(model.HoldRange, "ms"))),
	)

	saveButton := widget.NewButton("Save", nil)
	cancelButton := widget.NewButton("Cancel", nil)
	buttons := container.NewHBox(saveButton, layout.NewSpacer(), cancelButton)

	content := container.NewBorder(nil, buttons, nil, nil, form)
	window.SetContent(content)
	window.Resize(fyne.NewSize(420, 320))

	prefs := &Window{
		window:      window,
		store:       store,
		onSave:      onSave,
		frequency:   frequency,
		threshold:   threshold,
		hold:        hold,
		sensitivity: sensitivity,
		enabled:     enabled,
	}

	// Picking a preset previews its values; Save decides what is stored.
	sensitivity.OnChanged = func(value string) {
		level, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		preset := model.PresetFor(level)
		threshold.SetText(formatNumber(preset.ThresholdDB))
		hold.SetText(formatNumber(preset.HoldMs))
	}

	saveButton.OnTapped = prefs.handleSave
	cancelButton.OnTapped = window.Hide
	window.SetCloseIntercept(window.Hide)

	prefs.UpdateSettings(store.Settings())
	return prefs
}

// Show refreshes the fields from the store and displays the window.
func (prefs *Window) Show() {
	prefs.UpdateSettings(prefs.store.Settings())
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings model.DetectorSettings) {
	form := FormFrom(settings)
	onChanged := prefs.sensitivity.OnChanged
	prefs.sensitivity.OnChanged = nil
	prefs.sensitivity.SetSelected(strconv.Itoa(form.Sensitivity))
	prefs.sensitivity.OnChanged = onChanged

	prefs.frequency.SetText(form.FrequencyHz)
	prefs.threshold.SetText(form.ThresholdDB)
	prefs.hold.SetText(form.HoldMs)
	prefs.enabled.SetChecked(form.Enabled)
}

func (prefs *Window) handleSave() {
	sensitivity, err := strconv.Atoi(prefs.sensitivity.Selected)
	if err != nil {
		sensitivity = prefs.store.Settings().Sensitivity
	}
	form := Form{
		FrequencyHz: prefs.frequency.Text,
		ThresholdDB: prefs.threshold.Text,
		HoldMs:      prefs.hold.Text,
		Sensitivity: sensitivity,
		Enabled:     prefs.enabled.Checked,
	}

	if err := form.Apply(prefs.store); err != nil {
		dialog.ShowError(err, prefs.window)
		return
	}
	if prefs.onSave != nil {
		prefs.onSave(prefs.store.Settings())
	}
	prefs.window.Hide()
}

func rangeHint(bounds model.Range, unit string) string {
	return fmt.Sprintf("%s to %s %s", formatNumber(bounds.Min), formatNumber(bounds.Max), unit)
}
