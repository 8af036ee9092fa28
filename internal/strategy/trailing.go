package strategy

import (
	"fmt"

	"github.com/kirillm/powertrader/internal/config"
	"github.com/kirillm/powertrader/internal/domain"
)

// UpdateTrailing продвигает трейлинг-стоп позиции по текущей цене продажи
// и сообщает, пора ли фиксировать прибыль.
//
// Машина состояний: INACTIVE, пока цена не дошла до стартовой линии над
// себестоимостью; ARMED после касания; TRAILING, когда линия начала
// подниматься за пиком. Линия никогда не опускается и не уходит ниже
// стартовой, поэтому вооруженная позиция не может закрыться хуже
// минимального профита.
func UpdateTrailing(pos *domain.Position, settings config.Settings, sellPrice float64) (bool, Decision) {
	st := &pos.Trailing

	// Смена настроек трейлинга обнуляет машину: старые линии посчитаны
	// по другим процентам
	if sig := settings.TrailingSig(); st.SettingsSig != sig {
		st.Phase = domain.TrailInactive
		st.Line = 0
		st.Peak = 0
		st.WasAbove = false
		st.SettingsSig = sig
	}

	if sellPrice <= 0 || pos.CostBasis <= 0 {
		return false, Decision{Action: domain.ActionHold, Reason: "no usable sell price or cost basis"}
	}

	startPct := settings.PMStartPctNoDCA
	if pos.DCAStage > 0 {
		startPct = settings.PMStartPctWithDCA
	}
	baseLine := pos.CostBasis * (1 + startPct/100)

	if st.Phase == domain.TrailInactive {
		st.Line = baseLine
		if sellPrice < baseLine {
			return false, Decision{
				Action: domain.ActionHold,
				Reason: fmt.Sprintf("trailing inactive: price %.4f below start line %.4f (+%.2f%%)", sellPrice, baseLine, startPct),
			}
		}
		// Вооружение сразу переходит в сопровождение пика, чтобы линия
		// не отставала на один проход
		st.Phase = domain.TrailArmed
		st.Peak = sellPrice
		st.WasAbove = true
	}

	if sellPrice > st.Peak {
		st.Peak = sellPrice
	}
	candidate := st.Peak * (1 - settings.TrailingGapPct/100)
	if candidate < baseLine {
		candidate = baseLine
	}
	if candidate > st.Line {
		st.Line = candidate
		st.Phase = domain.TrailTrailing
	}

	if st.WasAbove && sellPrice < st.Line {
		return true, Decision{
			Action: domain.ActionTrailSell,
			Reason: fmt.Sprintf("price %.4f crossed below trailing line %.4f (peak %.4f)", sellPrice, st.Line, st.Peak),
			Details: map[string]interface{}{
				"phase": st.Phase,
				"line":  st.Line,
				"peak":  st.Peak,
			},
		}
	}
	if sellPrice >= st.Line {
		st.WasAbove = true
	}
	return false, Decision{
		Action: domain.ActionHold,
		Reason: fmt.Sprintf("trailing %s: price %.4f, line %.4f, peak %.4f", st.Phase, sellPrice, st.Line, st.Peak),
	}
}

// ResetTrailing сбрасывает машину после докупки или продажи: средняя
// себестоимость изменилась и все линии надо строить заново
func ResetTrailing(pos *domain.Position) {
	sig := pos.Trailing.SettingsSig
	pos.Trailing = domain.TrailingState{
		Phase:       domain.TrailInactive,
		SettingsSig: sig,
	}
}
