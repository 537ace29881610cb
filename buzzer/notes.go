package buzzer

import "time"

// Note frequencies in Hz. An L suffix is the low octave, H and HH the ones
// above; S marks a sharp.
const (
	CL  = 129
	CLS = 139
	DL  = 146
	DLS = 156
	EL  = 163
	FL  = 173
	FLS = 185
	GL  = 194
	GLS = 207
	AL  = 219
	ALS = 228
	BL  = 232

	C  = 261
	CS = 277
	D  = 294
	DS = 311
	E  = 329
	F  = 349
	FS = 370
	G  = 391
	GS = 415
	A  = 440
	AS = 455
	B  = 466
	H  = 494

	CH  = 523
	CHS = 554
	DH  = 587
	DHS = 622
	EH  = 659
	FH  = 698
	FHS = 740
	GH  = 784
	GHS = 830
	AH  = 880
	AHS = 910
	BH  = 933

	HH  = 988
	CHH = 1047
	DHH = 1175
)

func n(freq, ms int) Step {
	return Step{Freq: freq, Duration: time.Duration(ms) * time.Millisecond}
}

func rest(ms int) Step {
	return n(0, ms)
}

// Success is played when a door code was accepted.
var Success = Melody{
	n(B, 200), n(DH, 200), n(FH, 200), n(BH, 200), n(DHH, 200),
	rest(100),
	n(DHH, 200), rest(100),
	n(DHH, 600), rest(100),
}

// Failure is played when an attempt matched no code.
var Failure = Melody{
	n(DHH, 200), rest(100),
	n(DHH, 200), rest(100),
	n(DHH, 200), rest(100),
}

// ImperialMarch is played for the melody code.
var ImperialMarch = Melody{
	n(A, 500), n(A, 500), n(F, 350), n(CH, 150),
	n(A, 500), n(F, 350), n(CH, 150), n(A, 1000), n(EH, 500),
	n(EH, 500), n(EH, 500), n(FH, 350), n(CH, 150), n(GS, 500),
	n(F, 350), n(CH, 150), n(A, 1000), n(AH, 500), n(A, 350),
	n(A, 150), n(AH, 500), n(GHS, 250), n(GH, 250), n(FHS, 125),
	n(FH, 125), n(FHS, 250),
	rest(250),
	n(AS, 250), n(DHS, 500), n(DH, 250), n(CHS, 250), n(CH, 125),
	n(B, 125), n(CH, 250),
	rest(250),
	n(F, 125), n(GS, 500), n(F, 375), n(A, 125), n(CH, 500),
	n(A, 375), n(CH, 125), n(EH, 1000), n(AH, 500), n(A, 350),
	n(A, 150), n(AH, 500), n(GHS, 250), n(GH, 250), n(FHS, 125),
	n(FH, 125), n(FHS, 250),
	rest(250),
	n(AS, 250), n(DHS, 500), n(DH, 250), n(CHS, 250), n(CH, 125),
	n(B, 125), n(CH, 250),
	rest(250),
	n(F, 250), n(GS, 500), n(F, 375), n(CH, 125), n(A, 500),
	n(F, 375), n(C, 125), n(A, 1000),
}

// Key is the short confirmation beep for a key press.
var Key = Melody{n(A, 50)}
