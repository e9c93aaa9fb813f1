package authproviders

import "testing"

func TestWindowSkew(t *testing.T) {
	cases := []struct {
		window, want uint
	}{
		{0, 0},
		{1, 0},
		{11, 5},
	}
	for _, c := range cases {
		if got := windowSkew(c.window); got != c.want {
			t.Fatalf("windowSkew(%d) = %d, want %d", c.window, got, c.want)
		}
	}
}

func TestGenerateAndVerifyTOTPRoundTrip(t *testing.T) {
	secret, err := totpKey(passwordOTPAlgorithm)
	if err != nil {
		t.Fatalf("totpKey: %v", err)
	}
	code, err := generateTOTP(secret, passwordOTPAlgorithm, otp6())
	if err != nil {
		t.Fatalf("generateTOTP: %v", err)
	}
	ok, err := verifyTOTP(secret, code, passwordOTPWindow, passwordOTPAlgorithm, otp6())
	if err != nil {
		t.Fatalf("verifyTOTP: %v", err)
	}
	if !ok {
		t.Fatal("expected freshly generated code to verify")
	}
}

func TestVerifyTOTPRejectsWrongCode(t *testing.T) {
	secret, err := totpKey(totpSecondFactorAlgorithm)
	if err != nil {
		t.Fatalf("totpKey: %v", err)
	}
	ok, err := verifyTOTP(secret, "000000", totpSecondFactorWindow, totpSecondFactorAlgorithm, otp6())
	if err != nil {
		t.Fatalf("verifyTOTP: %v", err)
	}
	if ok {
		t.Fatal("expected a fixed wrong code to be vanishingly unlikely to verify")
	}
}
